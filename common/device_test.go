package common_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modbus-emu/slave/common"
)

func TestDeviceIdentificationGetters(t *testing.T) {
	id := &common.DeviceIdentification{
		ReadDeviceIDCode: common.ReadDeviceIDBasic,
		ConformityLevel:  0x01,
		NumberOfObjects:  3,
		Objects: []common.DeviceIDObject{
			{ID: common.DeviceIDVendorName, Length: 10, Value: "modbus-emu"},
			{ID: common.DeviceIDProductCode, Length: 9, Value: "SLAVE-EMU"},
			{ID: common.DeviceIDMajorMinorRevision, Length: 3, Value: "1.0"},
		},
	}

	assert.Equal(t, "modbus-emu", id.GetVendorName())
	assert.Equal(t, "SLAVE-EMU", id.GetProductCode())
	assert.Equal(t, "1.0", id.GetRevision())
	assert.Equal(t, "", id.GetVendorURL(), "object not present should return empty string")
	require.NotNil(t, id.GetObject(common.DeviceIDVendorName))
	assert.Nil(t, id.GetObject(common.DeviceIDModelName))
}

func TestDeviceIdentificationEncode(t *testing.T) {
	id := &common.DeviceIdentification{
		ReadDeviceIDCode: common.ReadDeviceIDBasic,
		ConformityLevel:  0x01,
		MoreFollows:      false,
		NumberOfObjects:  1,
		Objects: []common.DeviceIDObject{
			{ID: common.DeviceIDVendorName, Length: 2, Value: "ab"},
		},
	}

	encoded := id.Encode()
	expected := []byte{
		byte(common.MEIReadDeviceID),
		byte(common.ReadDeviceIDBasic),
		0x01,
		0x00,
		0x00,
		0x01,
		byte(common.DeviceIDVendorName), 0x02, 'a', 'b',
	}
	assert.Equal(t, expected, encoded)
}
