package poll

import "time"

// DefaultInterval is the wait between two runs when nothing else is configured.
const DefaultInterval = 60 * time.Second
