package domain

// Rejection reasons recorded in match diagnostics.
const (
	RejectCloudFraction = "cloud_fraction"
	RejectSolarZenith   = "solar_zenith"
	RejectQualityFlag   = "quality_flag"
)

// QualityPolicy decides whether a satellite observation is usable for
// matching. Thresholds are exclusive upper bounds: an observation at exactly
// the threshold is rejected.
type QualityPolicy struct {
	MaxCloudFraction  float64
	MaxSolarZenithDeg float64
}

// DefaultQualityPolicy mirrors the operational TEMPO L2 screening settings:
// cloud fraction < 0.3, solar zenith < 70°, quality flag must be 0.
func DefaultQualityPolicy() QualityPolicy {
	return QualityPolicy{
		MaxCloudFraction:  0.3,
		MaxSolarZenithDeg: 70,
	}
}

// Check returns (true, "") for a usable observation, or (false, reason) where
// reason is one of the Reject* constants. The first failing check wins.
func (p QualityPolicy) Check(o SatelliteObservation) (bool, string) {
	if o.CloudFraction >= p.MaxCloudFraction {
		return false, RejectCloudFraction
	}
	if o.SolarZenithDeg >= p.MaxSolarZenithDeg {
		return false, RejectSolarZenith
	}
	if o.QualityFlag != 0 {
		return false, RejectQualityFlag
	}
	return true, ""
}
