// Package domain models satellite and ground-based pollutant observations
// and the statistical value types derived from them.
//
// # Data Sources
//
// Satellite observations come from NASA TEMPO L2 retrievals (one record per
// pixel per overpass), flattened upstream into tabular form. Ground
// measurements come from regulatory monitoring networks (AirNow, NAPS and
// similar), one record per station per reporting interval. Both carry a UTC
// timestamp, WGS-84 coordinates, a pollutant code, and a concentration in the
// pollutant's conventional unit (ppb for gases, µg/m³ for particulates).
//
// # Quality Conventions
//
// TEMPO retrievals carry three quality fields used by the matching filter:
//
//	cloud_fraction:   effective cloud fraction in [0,1]. Retrievals with
//	                  fraction ≥ 0.3 see mostly cloud, not surface air.
//	solar_zenith_deg: solar zenith angle. Above ~70° the light path grows
//	                  long enough that retrieval error dominates the signal.
//	quality_flag:     retrieval processor flag; 0 is the only "good" value.
//	                  Nonzero values mark fill data, fit failures, or
//	                  out-of-range air-mass factors.
//
// Ground measurements carry no quality fields; the networks publish only
// values that already passed their own QA.
//
// # Matched Pairs
//
// A MatchedPair joins one satellite observation to one ground measurement
// that agree in pollutant, lie within the matching radius, and fall within
// the temporal window. Pairs are produced only by the match package and are
// never mutated afterwards; every analysis treats them as read-only input.
package domain
