// Package zcl builds the attribute reports this device sends and the frame
// envelope they travel in.
package zcl

// Cluster identifiers.
const (
	ClusterBasic       uint16 = 0x0000
	ClusterPowerConfig uint16 = 0x0001
	ClusterIdentify    uint16 = 0x0003
	ClusterOnOff       uint16 = 0x0006
)

// Attribute identifiers.
const (
	AttrOnOff             uint16 = 0x0000
	AttrBatteryVoltage    uint16 = 0x0020
	AttrBatteryAlarmState uint16 = 0x003e
)

// DataType is an attribute's wire type.
type DataType uint8

const (
	TypeBoolean  DataType = 0x10
	TypeBitmap32 DataType = 0x1b
	TypeUint8    DataType = 0x20
	TypeEnum8    DataType = 0x30
)

// Foundation command identifiers seen on inbound messages.
const (
	CmdReadRsp                 uint8 = 0x01
	CmdWriteRsp                uint8 = 0x04
	CmdConfigReport            uint8 = 0x06
	CmdConfigReportRsp         uint8 = 0x07
	CmdReadReportCfg           uint8 = 0x08
	CmdReadReportCfgRsp        uint8 = 0x09
	CmdReport                  uint8 = 0x0a
	CmdDefaultRsp              uint8 = 0x0b
	CmdDiscoverAttrsRsp        uint8 = 0x0d
	CmdDiscoverCmdsReceivedRsp uint8 = 0x12
	CmdDiscoverCmdsGenRsp      uint8 = 0x14
	CmdDiscoverAttrsExtRsp     uint8 = 0x16
)

// CmdBasicResetFactoryDefaults is the Basic cluster's reset command.
const CmdBasicResetFactoryDefaults uint8 = 0x00

// Direction of a frame relative to the cluster's client/server roles.
type Direction uint8

const (
	ClientToServer Direction = 0
	ServerToClient Direction = 1
)

// AddrMode selects how Address is interpreted.
type AddrMode uint8

const (
	AddrNotPresent AddrMode = 0
	AddrGroup      AddrMode = 1
	Addr16Bit      AddrMode = 2
	Addr64Bit      AddrMode = 3
	AddrBroadcast  AddrMode = 15
)

// Address is a report destination.
type Address struct {
	Mode     AddrMode `cbor:"1,keyasint"`
	Short    uint16   `cbor:"2,keyasint"`
	Endpoint uint8    `cbor:"3,keyasint"`
}

// CoordinatorAddress is short address 0x0000, endpoint 1.
var CoordinatorAddress = Address{Mode: Addr16Bit, Short: 0x0000, Endpoint: 1}

// Attribute is one reported attribute value.
type Attribute struct {
	ID    uint16   `cbor:"1,keyasint"`
	Type  DataType `cbor:"2,keyasint"`
	Value any      `cbor:"3,keyasint"`
}

// Report is a report-attributes frame.
type Report struct {
	SrcEndpoint       uint8       `cbor:"1,keyasint"`
	Dst               Address     `cbor:"2,keyasint"`
	Cluster           uint16      `cbor:"3,keyasint"`
	Direction         Direction   `cbor:"4,keyasint"`
	DisableDefaultRsp bool        `cbor:"5,keyasint"`
	Seq               uint8       `cbor:"6,keyasint"`
	Attrs             []Attribute `cbor:"7,keyasint"`
}

// Clone returns a deep copy of r that does not share the attribute slice.
func (r *Report) Clone() *Report {
	c := *r
	c.Attrs = append([]Attribute(nil), r.Attrs...)
	return &c
}
