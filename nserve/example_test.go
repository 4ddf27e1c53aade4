package nserve_test

import (
	"context"
	"fmt"

	"github.com/muir/nhttp/ngraph"
	"github.com/muir/nhttp/nserve"

	"github.com/pkg/errors"
)

type (
	L1      struct{}
	L2      struct{}
	L3      struct{}
	Service struct{}
)

func NewL1(app *nserve.App) *L1 {
	fmt.Println("L1 created")
	app.On(nserve.Start, func(_ context.Context, app *nserve.App) error {
		app.On(nserve.Stop, func(context.Context, *nserve.App) error {
			fmt.Println("L1 stopped")
			return fmt.Errorf("L1 stop error")
		})
		fmt.Println("L1 started")
		return nil
	})
	return &L1{}
}

func NewL2(app *nserve.App, _ *L1) *L2 {
	fmt.Println("L2 created")
	app.On(nserve.Start, func(_ context.Context, app *nserve.App) error {
		app.On(nserve.Stop, func(context.Context, *nserve.App) error {
			fmt.Println("L2 stopped")
			return fmt.Errorf("L2 stop error")
		})
		fmt.Println("L2 started")
		// L2 fails to start so L3 never starts
		return fmt.Errorf("L2 start error")
	})
	return &L2{}
}

func NewL3(_ *L2, app *nserve.App) *L3 {
	fmt.Println("L3 created")
	app.On(nserve.Start, func(context.Context, *nserve.App) error {
		fmt.Println("L3 started")
		return nil
	})
	return &L3{}
}

func ErrorCombiner(e1, e2 error) error {
	return errors.New(e1.Error() + "; " + e2.Error())
}

// Example shows the injection, startup, and shutdown of an app with
// three libraries.  Stop callbacks run in reverse order.
func Example() {
	nserve.Start.SetErrorCombiner(ErrorCombiner)
	nserve.Stop.SetErrorCombiner(ErrorCombiner)
	nserve.Shutdown.SetErrorCombiner(ErrorCombiner)
	app, err := nserve.CreateApp("myApp", ngraph.New(), NewL1, NewL2, NewL3, func(_ *L1, _ *L2, _ *L3, _ *nserve.App) *Service {
		fmt.Println("App created")
		return &Service{}
	})
	fmt.Println("create error:", err)
	err = app.Do(context.Background(), nserve.Start)
	fmt.Println("do start error:", err)
	fmt.Println("cancelled:", app.Context().Err() != nil)
	// Output: L1 created
	// L2 created
	// L3 created
	// App created
	// create error: <nil>
	// L1 started
	// L2 started
	// L2 stopped
	// L1 stopped
	// do start error: start: L2 start error; stop: L2 stop error; stop: L1 stop error
	// cancelled: true
}
