// Package domain reconciles recent precipitation for a single point from a
// station-observation source and a numerical-model source.
//
// # Data Sources
//
// Station observations come from the Meteostat point/hourly endpoint. Rows
// carry a UTC-naive timestamp ("2024-01-06 13:00:00"), a precipitation depth
// in millimeters ("prcp") and a snow depth on the ground in millimeters
// ("snow"). Either value may be null. The metadata block names the nearest
// station and its distance from the query point in meters.
//
// Model data comes from the Open-Meteo forecast endpoint as parallel hourly
// arrays: timestamps, precipitation in inches, snowfall in centimeters per
// hour and 2 m temperature in °F. Timestamps with an offset are used as is;
// wall-clock timestamps are resolved in the named IANA zone, so hours on both
// sides of a DST change keep their own offsets.
//
// # Reconciliation
//
// [Reconciler.Build] anchors a 48-slot hourly series on asOf, the most recent
// hour the chosen source actually reported:
//
//	station path:  asOf = last row with a precipitation value
//	               lag > VeryStaleAfter  → model path, flagged very_stale
//	               lag ≥ StaleAfter      → station path, flagged stale
//	model path:    asOf = last model hour at or before now
//
// Slots run asOf-47h … asOf, exactly one hour apart. A slot with no matching
// reading is absent (Present=false, nil values), which is distinct from a
// reading of zero.
//
// Station snow is not measured directly. A positive change in snow depth
// between a row and its predecessor is converted to fresh snow with a fixed
// snow-to-liquid ratio (default 10:1) and zeroed when the model temperature
// for that hour is above the veto threshold (default 35°F). The model path
// reports snowfall as given and applies no veto.
//
// # Windows
//
// [Window] derives a trailing view with its own coverage counts. The rain
// total is nil when no sample in the window is present; the snow total is 0
// rather than nil when no sample reported positive snow.
package domain
