package models

// Place groups spaces under one physical location.
type Place struct {
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
}

// Space is a reservable unit inside a place.
type Space struct {
	ID       string `yaml:"id" json:"id"`
	PlaceID  string `yaml:"place_id" json:"place_id"`
	Name     string `yaml:"name" json:"name"`
	Capacity int64  `yaml:"capacity" json:"capacity"`
	IsActive bool   `yaml:"is_active" json:"is_active"`
}
