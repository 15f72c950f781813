package environments

type Environment string

const (
	Production  Environment = "production"
	Development Environment = "development"
	Staging     Environment = "staging"
	Test        Environment = "test"
)

// IsDeployed reports whether the service runs against real money.
func (e Environment) IsDeployed() bool {
	return e == Production || e == Staging
}
