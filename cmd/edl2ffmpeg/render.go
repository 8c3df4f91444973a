package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/blackbird-aslough/edl2ffmpeg/internal/config"
	"github.com/blackbird-aslough/edl2ffmpeg/internal/edl"
	"github.com/blackbird-aslough/edl2ffmpeg/internal/libav"
	"github.com/blackbird-aslough/edl2ffmpeg/internal/orchestrator"
)

var (
	flagCodec         string
	flagBitrateKbps   int
	flagPreset        string
	flagCRF           int
	flagHWAccel       string
	flagDeviceIndex   int
	flagHWDecode      bool
	flagHWEncode      bool
	flagAllowFallback bool
	flagAsync         bool
)

var renderCmd = &cobra.Command{
	Use:   "render <edl-file> <output-file>",
	Short: "Render a JSON EDL timeline to an encoded video file",
	Args:  cobra.ExactArgs(2),
	RunE:  runRender,
}

func init() {
	cfg := configDefaultsForFlags()
	renderCmd.Flags().StringVar(&flagCodec, "codec", cfg.Render.Codec, "video codec (e.g. libx264, h264_nvenc)")
	renderCmd.Flags().IntVar(&flagBitrateKbps, "bitrate", 0, "target bitrate in kbps (mutually exclusive with --crf)")
	renderCmd.Flags().StringVar(&flagPreset, "preset", cfg.Render.Preset, "encoder preset")
	renderCmd.Flags().IntVar(&flagCRF, "crf", cfg.Render.CRF, "constant rate factor (mutually exclusive with --bitrate)")
	renderCmd.Flags().StringVar(&flagHWAccel, "hwaccel", cfg.Hardware.AccelType, "hardware accel type: auto, none, nvenc, vaapi, videotoolbox")
	renderCmd.Flags().IntVar(&flagDeviceIndex, "device-index", cfg.Hardware.DeviceIndex, "hardware device index")
	renderCmd.Flags().BoolVar(&flagHWDecode, "hw-decode", cfg.Hardware.AllowDecode, "hardware decode toggle; not read by render, which uses --hwaccel for decode and encode")
	renderCmd.Flags().BoolVar(&flagHWEncode, "hw-encode", cfg.Hardware.AllowEncode, "hardware encode toggle; not read by render, which uses --hwaccel for decode and encode")
	renderCmd.Flags().BoolVar(&flagAllowFallback, "allow-fallback", cfg.Hardware.AllowFallback, "fall back to software on hardware init failure")
	renderCmd.Flags().BoolVar(&flagAsync, "async", true, "use the encoder's async write mode")
}

func configDefaultsForFlags() *config.Config {
	cfg, err := config.Load("")
	if err != nil {
		return &config.Config{}
	}
	return cfg
}

func runRender(cmd *cobra.Command, args []string) error {
	edlPath, outputPath := args[0], args[1]

	if flagBitrateKbps != 0 && cmd.Flags().Changed("crf") {
		return fmt.Errorf("--bitrate and --crf are mutually exclusive")
	}

	data, err := os.ReadFile(edlPath)
	if err != nil {
		return fmt.Errorf("reading edl file: %w", err)
	}
	doc, err := edl.Parse(data)
	if err != nil {
		return fmt.Errorf("parsing edl: %w", err)
	}

	hwType, err := parseHWAccel(flagHWAccel)
	if err != nil {
		return err
	}

	opts := orchestrator.Options{
		HWDevice:      hwType,
		AllowFallback: flagAllowFallback,
		FramePoolSize: config.FromContext(cmd.Context()).FramePool.PoolSize,
		Async:         flagAsync,
		Encode: libav.EncodeParams{
			OutputPath:  outputPath,
			Codec:       flagCodec,
			BitrateKbps: flagBitrateKbps,
			Preset:      flagPreset,
			CRF:         flagCRF,
		},
	}

	orch, err := orchestrator.New(doc, opts)
	if err != nil {
		return fmt.Errorf("setting up orchestrator: %w", err)
	}
	defer orch.Close()

	summary, err := orch.Run()
	if err != nil {
		return fmt.Errorf("rendering: %w", err)
	}

	log.Info().
		Str("run_id", summary.RunID).
		Int("total_frames", summary.TotalFrames).
		Int("gpu_passthrough", summary.GPUPassthrough).
		Int("cpu_processed", summary.CPUProcessed).
		Int("generated_frames", summary.GeneratedFrames).
		Str("hardware_device", summary.HardwareDevice).
		Dur("wall_time", summary.WallTime).
		Float64("average_fps", summary.AverageFPS).
		Msg("render complete")

	return nil
}

func parseHWAccel(name string) (libav.HWDeviceType, error) {
	switch name {
	case "", "auto", "none":
		return libav.HWDeviceNone, nil
	case "nvenc":
		return libav.HWDeviceCUDA, nil
	case "vaapi":
		return libav.HWDeviceVAAPI, nil
	case "videotoolbox":
		return libav.HWDeviceVideoToolbox, nil
	case "qsv":
		return libav.HWDeviceQSV, nil
	default:
		return libav.HWDeviceNone, fmt.Errorf("unknown hwaccel type %q", name)
	}
}
