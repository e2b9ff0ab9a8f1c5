package main

// Options is option of the command.
type Options struct {
	WeightsFile string `short:"w" long:"weights-file" env:"ACNET_WEIGHTS_FILE" description:"Path of the weights (.pth, .pt, .safetensors or .json)"`
	ImageFile   string `short:"i" long:"image-file" env:"ACNET_IMAGE_FILE" description:"Path of the test image"`
	Scale       int    `short:"s" long:"scale" default:"2" description:"Upscaling factor (2, 3 or 4)"`

	Compress bool `long:"compress" description:"JPEG compress the low resolution image"`
	Quality  int  `long:"quality" default:"60" description:"JPEG quality used by --compress"`

	Crop    bool `long:"crop" description:"Also save square thumbnails of every image"`
	Top     int  `long:"top" default:"760" description:"Top edge of the thumbnail"`
	Left    int  `long:"left" default:"160" description:"Left edge of the thumbnail"`
	SideLen int  `long:"side_len" default:"100" description:"Side length of the thumbnail"`

	Features int  `long:"features" default:"64" description:"Feature channels of the model"`
	Depth    int  `long:"depth" default:"17" description:"Number of asymmetric blocks"`
	NoFuse   bool `long:"no-fuse" description:"Run the asymmetric kernels separately instead of folding them"`

	Backend   string `long:"backend" default:"native" choice:"native" choice:"onnx" description:"Inference backend"`
	ONNXModel string `long:"onnx-model" description:"Exported ONNX graph used by --backend=onnx"`
	ONNXLib   string `long:"onnx-lib" env:"ONNXRUNTIME_LIB" description:"Path of the onnxruntime shared library"`
	Device    string `long:"device" default:"auto" choice:"auto" choice:"cpu" choice:"cuda" description:"Device of the onnx backend"`

	Resampler string `long:"resampler" default:"nfnt" choice:"nfnt" choice:"gift" choice:"catmullrom" description:"Bicubic resampler"`
	CPU       int    `short:"c" long:"cpu" description:"The number of CPUs used to calculate"`

	ExportWeights string `long:"export-weights" description:"Write the loaded weights as safetensors to this path"`
	Summary       bool   `long:"summary" description:"Print a table of the written files"`
	Verbose       bool   `short:"v" long:"verbose" description:"Log per-layer progress"`
	Config        string `long:"config" no-ini:"true" description:"INI file with option values"`
}

// configOption is parsed ahead of Options to find the INI file.
type configOption struct {
	Config string `long:"config"`
}
