package model

// Worker is a registry entry for a person on the floor.
type Worker struct {
	WorkerID string `json:"worker_id" msgpack:"worker_id" koanf:"worker_id"`
	Name     string `json:"name" msgpack:"name" koanf:"name"`
}

// Workstation is a registry entry for a station.
type Workstation struct {
	StationID   string `json:"station_id" msgpack:"station_id" koanf:"station_id"`
	Name        string `json:"name" msgpack:"name" koanf:"name"`
	StationType string `json:"station_type,omitempty" msgpack:"station_type" koanf:"station_type"`
}
