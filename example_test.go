package authsystem_test

import (
	"context"
	"errors"
	"fmt"

	"github.com/alicebob/miniredis/v2"
	authsystem "github.com/neecatt/UserAuthSystem"
	"github.com/neecatt/UserAuthSystem/store/memory"
	"github.com/redis/go-redis/v9"
)

// ExampleNew demonstrates engine construction and a password login.
func ExampleNew() {
	mr, _ := miniredis.Run()
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	cfg := authsystem.DefaultConfig()
	cfg.JWT.Secret = []byte("example-secret-example-secret-32b")
	cfg.Password.BcryptCost = 10
	cfg.Audit.Enabled = false

	engine, err := authsystem.New().
		WithConfig(cfg).
		WithStore(memory.New()).
		WithRedis(rdb).
		Build()
	if err != nil {
		fmt.Println(err)
		return
	}
	defer engine.Close()

	ctx := context.Background()
	if _, err := engine.Register(ctx, "Alice@Example.com", "correct-horse"); err != nil {
		fmt.Println(err)
		return
	}
	res, err := engine.Login(ctx, "alice@example.com", "correct-horse")
	if err != nil {
		fmt.Println(err)
		return
	}
	identity, err := engine.ValidateBearerToken(ctx, "Bearer "+res.AccessToken)
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(identity.Email, res.TwoFactorRequired)
	// Output: alice@example.com false
}

// ExampleEngine_Login shows how to branch on the login result.
func ExampleEngine_Login() {
	var engine *authsystem.Engine
	res, err := engine.Login(context.Background(), "alice@example.com", "password")
	switch {
	case errors.Is(err, authsystem.ErrInvalidCredentials):
		fmt.Println("wrong email or password")
	case err != nil:
		fmt.Println("try again later")
	case res.TwoFactorRequired:
		fmt.Println("ask for a code for challenge", res.Challenge)
	default:
		fmt.Println("signed in")
	}
}
