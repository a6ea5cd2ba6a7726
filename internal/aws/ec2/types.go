package ec2

import "time"

// Instance is one compute instance backing a cluster node.
type Instance struct {
	InstanceID string
	Type       string
	State      string
	ImageID    string
	LaunchTime time.Time
}

// Image is the machine image an instance was launched from. CreationDate is
// zero when EC2 didn't report one.
type Image struct {
	ImageID      string
	CreationDate time.Time
	Description  string
}
