package ble

import (
	"github.com/google/uuid"
)

// Event is a radio callback delivered to a state machine.
type Event interface {
	event()
}

// ConnectionChanged reports a link to Peer going up or down.
type ConnectionChanged struct {
	Peer      string
	Connected bool
	Status    Status
}

// ServiceAdded reports that the local server registered Service, or, on a
// client, the result of Link.DiscoverServices. Characteristics lists what
// discovery found.
type ServiceAdded struct {
	Service         uuid.UUID
	Characteristics []uuid.UUID
	Status          Status
}

// CharacteristicRead is a read request from Peer on a server, or the
// completion of Link.Read on a client. Value carries the characteristic's
// current value in both cases.
type CharacteristicRead struct {
	Peer           string
	RequestID      int
	Characteristic uuid.UUID
	Value          []byte
	Status         Status
}

// CharacteristicWrite is a write request from Peer on a server, or the
// completion of Link.Write on a client.
type CharacteristicWrite struct {
	Peer           string
	RequestID      int
	Characteristic uuid.UUID
	Value          []byte
	ResponseNeeded bool
	Status         Status
}

// CharacteristicChanged is a notification or indication received by a client.
type CharacteristicChanged struct {
	Characteristic uuid.UUID
	Value          []byte
}

// DescriptorWrite is a descriptor write request on a server, typically a
// CCCD subscription.
type DescriptorWrite struct {
	Peer           string
	RequestID      int
	Characteristic uuid.UUID
	Descriptor     uuid.UUID
	Value          []byte
	ResponseNeeded bool
}

// ScanResult is an advertisement matching the scan filter.
type ScanResult struct {
	Peer string
	Name string
	RSSI int16
}

// ScanFailed reports that a scan started by Radio.StartScan ended with an
// error after StartScan returned.
type ScanFailed struct {
	Err error
}

func (ConnectionChanged) event()     {}
func (ServiceAdded) event()          {}
func (CharacteristicRead) event()    {}
func (CharacteristicWrite) event()   {}
func (CharacteristicChanged) event() {}
func (DescriptorWrite) event()       {}
func (ScanResult) event()            {}
func (ScanFailed) event()            {}
