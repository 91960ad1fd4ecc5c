package liftmetadata

import (
	"encoding/json"

	"github.com/KarimSabra13/SysPark/internal/liftconsts"
	"github.com/KarimSabra13/SysPark/internal/logger"
)

var Log = logger.GetLogger()

type TerminalMetaData struct {
	SoftwareVersion string          `json:"software_version"`
	Identifier      string          `json:"identifier"`
	Role            liftconsts.Role `json:"role"`
	LiftEnabled     bool            `json:"lift_enabled"`
}

func (metaData *TerminalMetaData) String() string {
	jsonData, err := json.Marshal(metaData)

	if err != nil {
		Log.Error().Msg("Error Serialising TerminalMetaData Object to JSON")
		return ""
	}
	return string(jsonData)
}
