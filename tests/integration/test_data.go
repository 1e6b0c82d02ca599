package integration

import (
	"fmt"
	"time"
)

// TestStaff generates unique test staff credentials using timestamp
func TestStaff(suffix string) (username, password string) {
	ts := time.Now().UnixNano()
	username = fmt.Sprintf("staff-%d-%s", ts, suffix)
	password = "TestPassword123!"
	return
}

// TestSerial generates a well-formed but unique serial for seeding
func TestSerial(block string) string {
	return fmt.Sprintf("VC-%s-0000-0000-0001", block)
}
