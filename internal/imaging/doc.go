// Package imaging loads document images and cuts them into fixed-size
// patches for recognition.
//
// # Coordinate System
//
// All pixel coordinates are 0-based with (0,0) at the top-left corner, X
// increasing rightward and Y increasing downward. Rectangles are inclusive
// at the top-left and exclusive at the bottom-right.
//
// # Tiling
//
// Tile cuts an image into a row-major grid of PatchShape patches starting at
// the origin. A remainder narrower or shorter than one patch is dropped, so
// text in the last partial strip is never read. TileOverlay draws the grid
// over an image with the dropped remainder shaded.
//
// Stitch is the inverse at the text level: it joins the predicted sequence
// of each cell left to right into one line per row and the rows top to
// bottom with newlines.
//
// # Color
//
// Every loaded image is converted to opaque NRGBA. Alpha is discarded, not
// composited, so patches always have exactly three meaningful channels.
//
// # Thread Safety
//
// Functions are stateless. Patches returned by Tile share pixels with the
// source image and must not be modified.
package imaging
