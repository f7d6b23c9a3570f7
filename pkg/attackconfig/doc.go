// Package attackconfig provides the configuration shared by every
// security probe.
//
// Probe packages embed [Base] to inherit the API requester, the
// per-request timeout and the endpoint under test:
//
//	type TesterConfig struct {
//	    attackconfig.Base
//	    Origin string
//	}
package attackconfig
