package app

import (
	"github.com/dkeye/skillcall/internal/core"
	"github.com/dkeye/skillcall/internal/domain"
)

type DeliveryAction int

const (
	NoAction DeliveryAction = iota
	KickMember
)

// Policy decides what happens to a connection a broadcast could not reach.
type Policy interface {
	OnDeliveryFailure(room domain.RoomName, conn core.Connection, err error) DeliveryAction
}

// SimplePolicy removes every connection that failed a delivery.
type SimplePolicy struct{}

func (SimplePolicy) OnDeliveryFailure(domain.RoomName, core.Connection, error) DeliveryAction {
	return KickMember
}
