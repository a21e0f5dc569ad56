package core

import (
	"github.com/google/uuid"

	"pkt.systems/loom/schema"
)

func newTabUID() schema.TabUID {
	return schema.TabUID(uuid.NewString())
}

func newGroupID() schema.GroupID {
	return schema.GroupID(uuid.NewString())
}
