// Package scan is the root of the depth-to-segmented-point-cloud pipeline.
//
// Layering mirrors the order a frame flows through:
//
//	geometry  - depth unprojection, pose transforms (pure math)
//	ground    - ground plane snapshot and ground removal
//	voxel     - largest 26-connected voxel component
//	tuning    - versioned tuning snapshot shared by the stages
//	quality   - per-frame sampling stride controller
//	autotune  - median-distance threshold bands
//	pointbuf  - wire format of one segmented cloud
//	preview   - preview throttle and depth thumbnails
//	pipeline  - per-frame composition root
//	session   - acquisition loop and the single processing worker
//	transport - gRPC delivery to the host application
//
// Dependency rule: lower layers never import higher ones. Only pipeline,
// session and transport compose other layers.
package scan
