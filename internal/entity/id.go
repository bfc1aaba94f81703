package entity

import (
	"strconv"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

type ID string

func NewID(id any) ID {
	switch v := id.(type) {
	case string:
		return ID(v)
	case uint:
		return ID(strconv.FormatUint(uint64(v), 10))
	case uuid.UUID:
		return ID(v.String())
	}
	panic("unsupported ID type")
}

// GenerateID returns a fresh random ID.
func GenerateID() ID { return NewID(uuid.New()) }

func (id ID) String() string { return string(id) }
func (id ID) Uint() uint     { return uint(lo.Must(strconv.ParseUint(id.String(), 10, 64))) }
