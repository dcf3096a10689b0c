package domain

import "time"

// Clock abstracts time so deadline and claim-window checks can be tested
// deterministically.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// SystemClock is the wall-clock implementation used outside of tests.
var SystemClock Clock = systemClock{}
