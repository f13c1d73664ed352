package taskname

const (
	// Distribution sweeps
	SweepFraud     = "distribution:sweep:fraud"
	SweepCRS       = "distribution:sweep:crs"
	SweepEarnings  = "distribution:sweep:earnings"
	SweepTier      = "distribution:sweep:tier"
	SweepRetention = "distribution:sweep:retention"
)

// Sweeps lists every sweep task type.
var Sweeps = []string{SweepFraud, SweepCRS, SweepEarnings, SweepTier, SweepRetention}

func IsSweep(name string) bool {
	for _, s := range Sweeps {
		if s == name {
			return true
		}
	}
	return false
}
