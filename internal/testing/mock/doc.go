// Package mock provides controllable stand-ins for process-level resources
// used by releasetest tests.
//
// MockClock implements clock.Clock. Its Sleep advances the clock instead of
// blocking, which lets tests drive build, startup and node-wait poll loops
// past their deadlines without waiting in real time:
//
//	clk := mock.NewMockClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
//	clk.OnSleep(func(time.Duration) { backend.buildState = "succeeded" })
//	manager := cluster.NewFullManager(backend, "prj_1", "many_tasks", cluster.WithClock(clk))
package mock
