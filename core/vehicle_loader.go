package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/signalsfoundry/aerostab/model"
)

// VehicleStore is the subset of kb.KnowledgeBase the loader needs.
type VehicleStore interface {
	AddVehicle(v model.Vehicle) (string, error)
}

type vehicleFileJSON struct {
	Vehicles []model.Vehicle `json:"vehicles"`
}

// DecodeVehicles reads vehicle definitions from JSON. The document may be a
// single vehicle, an array of vehicles or an object with a "vehicles" array.
func DecodeVehicles(r io.Reader) ([]model.Vehicle, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("DecodeVehicles: read failed: %w", err)
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, fmt.Errorf("DecodeVehicles: empty document")
	}

	if raw[0] == '[' {
		var list []model.Vehicle
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("DecodeVehicles: decode failed: %w", err)
		}
		return list, nil
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("DecodeVehicles: decode failed: %w", err)
	}
	if _, ok := probe["vehicles"]; ok {
		var file vehicleFileJSON
		if err := json.Unmarshal(raw, &file); err != nil {
			return nil, fmt.Errorf("DecodeVehicles: decode failed: %w", err)
		}
		return file.Vehicles, nil
	}
	var v model.Vehicle
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("DecodeVehicles: decode failed: %w", err)
	}
	return []model.Vehicle{v}, nil
}

// LoadVehicles decodes r and adds every vehicle to store, returning the IDs
// in document order. It stops at the first rejected vehicle.
func LoadVehicles(store VehicleStore, r io.Reader) ([]string, error) {
	if store == nil {
		return nil, fmt.Errorf("LoadVehicles: store is nil")
	}
	vehicles, err := DecodeVehicles(r)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(vehicles))
	for i, v := range vehicles {
		id, err := store.AddVehicle(v)
		if err != nil {
			return ids, fmt.Errorf("LoadVehicles: vehicle %d (%q): %w", i, v.ID, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
