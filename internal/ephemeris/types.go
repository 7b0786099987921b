package ephemeris

// UnknownName is reported when a report carries no recognizable body name.
const UnknownName = "Unknown"

// Position is a Cartesian position in km. Each component is nil when absent.
type Position struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
	Z *float64 `json:"z"`
}

// Velocity is a Cartesian velocity in km/s. Each component is nil when absent.
type Velocity struct {
	VX *float64 `json:"vx"`
	VY *float64 `json:"vy"`
	VZ *float64 `json:"vz"`
}

// Record holds the fields extracted from one Horizons report.
// Absent numeric fields are nil and serialize as JSON null, so a client can
// tell "not reported" from a reported zero.
type Record struct {
	Name         string   `json:"name"`
	RadiusKm     *float64 `json:"radius_km"`
	Mass1e24Kg   *float64 `json:"mass_10^24_kg"`
	PositionKm   Position `json:"position_km"`
	VelocityKmS  Velocity `json:"velocity_km_s"`
	Albedo       *float64 `json:"albedo"`
	TemperatureK *float64 `json:"temperature_K"`
}

// Empty reports whether no field at all was found in the report.
func (r Record) Empty() bool {
	return r.Name == UnknownName &&
		r.RadiusKm == nil &&
		r.Mass1e24Kg == nil &&
		r.PositionKm == (Position{}) &&
		r.VelocityKmS == (Velocity{}) &&
		r.Albedo == nil &&
		r.TemperatureK == nil
}
