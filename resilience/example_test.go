package resilience_test

import (
	"context"
	"fmt"
	"time"

	"github.com/jonwraymond/opguard/fault"
	"github.com/jonwraymond/opguard/resilience"
)

func ExampleNewRateLimiter() {
	rl, err := resilience.NewRateLimiter(resilience.RateLimiterConfig{
		MaxRequests: 2,
		Window:      10 * time.Second,
	})
	if err != nil {
		panic(err)
	}

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, s := range []int{0, 1, 2, 11} {
		fmt.Printf("t=%d allowed=%v\n", s, rl.IsAllowed("client-a", start.Add(time.Duration(s)*time.Second)))
	}
	// Output:
	// t=0 allowed=true
	// t=1 allowed=true
	// t=2 allowed=false
	// t=11 allowed=true
}

func ExamplePolicy_Delay() {
	p := resilience.Policy{
		MaxAttempts: 5,
		BaseDelay:   time.Second,
		MaxDelay:    5 * time.Second,
		Multiplier:  2,
	}
	for n := range 4 {
		fmt.Println(p.Delay(n))
	}
	// Output:
	// 1s
	// 2s
	// 4s
	// 5s
}

func ExampleRetry_Execute() {
	r := resilience.NewRetry(resilience.RetryConfig{
		Wait: func(context.Context, time.Duration) error { return nil },
	})

	calls := 0
	v, err := r.Execute(context.Background(), func(context.Context) (any, error) {
		calls++
		if calls < 2 {
			return nil, fault.ExternalService("inventory", "connection reset")
		}
		return "reserved", nil
	}, resilience.DefaultPolicy())

	fmt.Println(v, err, calls)
	// Output:
	// reserved <nil> 2
}

func ExampleExecutor_Invoke() {
	exec := resilience.NewExecutor()

	out := exec.Invoke(context.Background(), "client-a", func(context.Context) (any, error) {
		return nil, fault.FieldError("quantity", "must be positive")
	}, resilience.DefaultPolicy())

	fmt.Println(out.Status, out.Attempts)
	fmt.Println(out.Response.HTTPStatus(), out.Response.Error.Code)
	fmt.Println(out.Response.Error.Details["quantity"])
	// Output:
	// failed 1
	// 400 VALIDATION_ERROR
	// must be positive
}
