package backends

// Usage restricts which programs should accept a given backend.
type Usage uint8

const (
	// UsageCLI: one-shot command line programs.
	UsageCLI Usage = 1 << iota
	// UsageServer: the HTTP service.
	UsageServer
	// UsageDaemon: the registry gRPC daemon.
	UsageDaemon
)

func (u Usage) allows(want Usage) bool { return u&want != 0 }
