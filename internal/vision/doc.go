// Package vision is the per-frame image stage of the tracker: it turns a
// BGR frame into the external contours of dark foreground blobs inside a
// region-of-interest mask, and samples one gray pixel for the indicator
// light.
//
// The mask is built once, from the first frame that is not entirely black
// (cameras deliver zero frames while they warm up). Every frame then goes
// through
//
//	gray    = BGR -> gray
//	masked  = open(not(gray) * mask01)
//	binary  = open(threshold(masked, 255 - detect))
//	result  = external contours of binary, simple chain approximation
//
// with a 3x3 rectangular kernel for every opening.
package vision
