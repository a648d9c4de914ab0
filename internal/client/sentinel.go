package client

// powerOffRun is the length of a contiguous '~' run that signals the
// board firmware has shut down cleanly (spec.md §4.3, §8 invariant 5).
const powerOffRun = 20

// sentinelDetector counts a contiguous run of '~' (0x7E) bytes across
// successive console chunks; any other byte resets the counter.
type sentinelDetector struct {
	run int
}

// Feed scans data for the sentinel run, returning true if it was
// observed anywhere in data. The counter resets both on a non-'~' byte
// and once a run fires, so a later, fresh run of powerOffRun is
// required to fire again (matching the original's
// power_off_chars++ == 19 then power_off_chars = 0).
func (d *sentinelDetector) Feed(data []byte) bool {
	hit := false
	for _, b := range data {
		if b == '~' {
			d.run++
			if d.run >= powerOffRun {
				hit = true
				d.run = 0
			}
		} else {
			d.run = 0
		}
	}
	return hit
}
