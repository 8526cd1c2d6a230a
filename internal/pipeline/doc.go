// Package pipeline executes runs: one site configuration taken through
// discovery, page guessing and the fuzz sweep.
//
// Each stage is a Step that receives the run and fills in its site model.
// SitePipeline assembles the standard steps from a site configuration and
// its data lists; a Pipeline can equally be built by hand:
//
//	p := pipeline.New(pipeline.WithLogger(logger))
//	p.AddSteps(
//		pipeline.NewDiscoverStep(spider),
//		pipeline.NewGuessStep(spider, lists.PageGuesses),
//	)
//	err := p.Execute(ctx, run)
//
// BatchProcessor runs several site configurations with bounded
// concurrency. Runs never share a site model or a session, so one
// target's failure leaves the others untouched.
package pipeline
