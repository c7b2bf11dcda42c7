package talebot_test

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/aretw0/talebot"
	"github.com/aretw0/talebot/internal/config"
	"github.com/aretw0/talebot/pkg/domain"
	"github.com/aretw0/talebot/pkg/validate"
)

func ExampleNew() {
	dir, err := os.MkdirTemp("", "talebot-example")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	cfg := &config.Config{
		Store:          config.StoreMemory,
		IdleTimeout:    30 * time.Minute,
		StoreTimeout:   time.Second,
		HandoffTimeout: time.Minute,
		MaxInputSize:   4096,
		DatabasePath:   filepath.Join(dir, "talebot.db"),
		Policy:         validate.DefaultPolicy(),
	}

	ctx := context.Background()
	app, err := talebot.New(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer app.Close()

	inst := app.HandleTurn(ctx, "example:1", domain.FlowProfileCreation, "")
	fmt.Println(inst.Text)

	inst = app.HandleTurn(ctx, "example:1", "", "Alice")
	fmt.Println(inst.Text)

	inst = app.HandleTurn(ctx, "example:1", "", "/cancel")
	fmt.Println(inst.Kind)

	// Output:
	// Let's create a profile for your little one!
	// What is the child's name?
	// Alice is a lovely name!
	// How old is Alice? Please type a number.
	// cancelled
}
