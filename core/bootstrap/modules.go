package bootstrap

import "context"

// Seeder loads reference data into in-process state before the bot starts serving.
type Seeder interface {
	Name() string
	Seed(ctx context.Context) error
}

// SeederFunc adapts a bare function to the Seeder interface.
type SeederFunc struct {
	Label string
	Fn    func(ctx context.Context) error
}

// Name returns the label used in logs.
func (f SeederFunc) Name() string { return f.Label }

// Seed executes the underlying function.
func (f SeederFunc) Seed(ctx context.Context) error {
	if f.Fn == nil {
		return nil
	}
	return f.Fn(ctx)
}
