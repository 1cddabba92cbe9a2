// Package pkg holds the libraries behind zeromv, a tool that turns one
// photo into six consistent views of the same object.
//
// # Overview
//
// A run flows through these packages in order:
//
//	input photo
//	     ↓
//	[tiles] package (decode, pad to a square conditioning image)
//	     ↓
//	[backend] package (multi-view model renders a composite grid)
//	     ↓
//	[tiles] package (split the composite into six tiles)
//	     ↓
//	[layout] package (tiles, composite copy, contact sheet, manifest)
//
// [pipeline] orchestrates the stages and caches composites through [cache].
// Supporting packages:
//
//   - [config]: defaults, config file, environment and flag layers
//   - [device]: compute device probing
//   - [rig]: the fixed camera poses of the six views
//   - [history]: records of completed runs (files or MongoDB)
//   - [publish]: optional upload of artifacts to S3-compatible storage
//   - [server]: the HTTP API over the pipeline
//   - [errors], [observability], [httputil], [buildinfo]: shared plumbing
//
// # Quick Start
//
//	b, _ := backend.New(backend.KindHTTP, backend.Options{URL: "http://gpu-box:7860"})
//	runner := pipeline.NewRunner(b, nil, nil, logger)
//	res, err := runner.Execute(ctx, pipeline.Options{Input: "chair.jpg"})
//	if err != nil {
//	    return err
//	}
//	fmt.Println(res.Run.RunDir, len(res.Tiles))
package pkg
