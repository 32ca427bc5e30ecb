package entity

import (
	"staffhub/internal/entity/common"
)

// Type aliases for common types
type JSONMap = common.JSONMap
type Envelope = common.Envelope
type Meta = common.Meta
type BaseParams = common.BaseParams
