package identitystub

import (
	"context"

	"jobmarket/cmd/identity"
)

// demoUsers covers every marketplace role.
var demoUsers = []identity.CreateUserInput{
	{Email: "employee@jobmarket.test", Role: "employee", FirstName: "Ada", LastName: "Lovelace", Verified: true},
	{Email: "employer@jobmarket.test", Role: "employer", DisplayName: "Analytical Engines Ltd", Verified: true},
	{Email: "both@jobmarket.test", Role: "both", FirstName: "Grace", LastName: "Hopper", Verified: false},
	{Email: "admin@jobmarket.test", Role: "admin", FirstName: "Alan", LastName: "Turing", Verified: true},
}

// SeedDemoUsers creates the demo accounts with the given password.
func SeedDemoUsers(ctx context.Context, dir identity.Directory, password string) ([]identity.User, error) {
	out := make([]identity.User, 0, len(demoUsers))
	for _, in := range demoUsers {
		in.Password = password
		u, err := dir.CreateUser(ctx, in)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}
