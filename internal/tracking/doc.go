// Package tracking follows a single subject per camera. Each Track call
// reads the camera's slot in the shared frame buffer, runs the image stage,
// smooths the largest detection with a constant-velocity Kalman filter,
// reports transitions between labeled nodes and samples the indicator
// light.
//
// Node transitions are reported once: Result.NodeUpdated is true only on
// the frame where the matched node changes. A frame without a detection
// keeps the previous node and never produces a transition.
package tracking
