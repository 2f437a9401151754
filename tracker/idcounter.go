package tracker

import (
	"sync"

	"github.com/pkg/errors"
)

// NoID is the sentinel value a track carries before an id has been
// allocated to it
const NoID = -1

// IDCounter hands out unique monotonically increasing id numbers.  A tracker
// holds two independent counters, one for internal set-operation ids and one
// for the externally reported track ids.  They deliberately use different
// start values so the two id spaces never collide; sharing a single counter
// across them would connect tracks of different objects
type IDCounter struct {
	startID int
	id      int
	sync.Mutex
}

// NewIDCounter creates a counter beginning at startID.  The start id must be
// strictly greater than NoID so an allocated id can never be mistaken for
// the no-id sentinel
func NewIDCounter(startID int) (*IDCounter, error) {

	if startID <= NoID {
		return nil, errors.Errorf("start id must be greater than %d, got %d",
			NoID, startID)
	}

	c := &IDCounter{startID: startID}
	c.id = startID

	return c, nil
}

// NewID returns the next id number
func (c *IDCounter) NewID() int {
	c.Lock()
	defer c.Unlock()

	id := c.id
	c.id++

	return id
}

// Reset winds the counter back to its configured start id
func (c *IDCounter) Reset() {
	c.Lock()
	defer c.Unlock()

	c.id = c.startID
}
