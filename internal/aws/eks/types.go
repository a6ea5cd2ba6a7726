package eks

// Cluster carries the control-plane metadata the analyzer needs: version for
// the compliance check, endpoint and CA for the readiness probe.
type Cluster struct {
	Name          string
	Status        string
	Version       string
	Endpoint      string
	CertAuthority string // base64-encoded CA for the K8s API
}
