package demoreplica

import "github.com/replisync/replisync"

// RegisterAll populates m and the package-level kind registry with every
// fixture type in this package. Call once per process (or once per test)
// before decoding any wire data.
func RegisterAll(m *replisync.Manifest) {
	m.Register(KindPosition, "demoreplica.Position", BuildPosition)
	m.Register(KindHealth, "demoreplica.Health", BuildHealth)
	m.Register(KindMove, "demoreplica.Move", BuildMove)

	replisync.RegisterKind[*Position](KindPosition)
	replisync.RegisterKind[*Health](KindHealth)
	replisync.RegisterKind[*Move](KindMove)
}
