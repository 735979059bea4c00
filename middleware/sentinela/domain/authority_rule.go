package domain

import "fmt"

type AuthorityStrategy int

const (
	AuthorityWhite AuthorityStrategy = iota
	AuthorityBlack
)

var authorityNames = []string{"white", "black"}

func (s AuthorityStrategy) String() string { return enumName(int(s), authorityNames) }
func (s AuthorityStrategy) MarshalText() ([]byte, error) { return []byte(s.String()), nil }
func (s *AuthorityStrategy) UnmarshalText(b []byte) error {
	i, err := enumText(b, authorityNames)
	*s = AuthorityStrategy(i)
	return err
}

// AuthorityRule permite/nega por origem. LimitApp é uma lista separada por vírgula.
type AuthorityRule struct {
	Resource string            `json:"resource" yaml:"resource"`
	LimitApp string            `json:"limitApp" yaml:"limitApp"`
	Strategy AuthorityStrategy `json:"strategy" yaml:"strategy"`
}

func (r AuthorityRule) ResourceName() string { return r.Resource }

func (r AuthorityRule) Validate() error {
	switch {
	case r.Resource == "":
		return fmt.Errorf("%w: empty resource", ErrInvalidRule)
	case r.LimitApp == "":
		return invalidRule(r, "limitApp cannot be empty")
	case r.Strategy != AuthorityWhite && r.Strategy != AuthorityBlack:
		return invalidRule(r, "unknown strategy %d", int(r.Strategy))
	}
	return nil
}

func (r AuthorityRule) String() string {
	return fmt.Sprintf("AuthorityRule{resource=%s, limitApp=%s, strategy=%s}", r.Resource, r.LimitApp, r.Strategy)
}
