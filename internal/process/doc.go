// Package process runs one external command and owns it until it exits.
//
// A Process moves through not_started, running, terminating and terminated.
// Stop is the only way out of running besides the command exiting on its
// own:
//   - with an input pipe, Stop closes stdin so the command can flush
//   - without one, Stop sends SIGINT to the process group
//   - after the graceful timeout the whole group gets SIGKILL (exit code 137)
//
// Output lines go to an optional OutputHandler and to a logger, with levels
// taken from a LogParser. The last stderr lines are kept for error reports.
//
//	p := process.New("encode", "ffmpeg", args, logger,
//		process.WithInput(),
//		process.WithLogParser(ffmpegLogger, ffmpeg.ParseLogLevel),
//		process.WithGracefulTimeout(300*time.Second))
//	if err := p.Start(); err != nil {
//		return err
//	}
//	_, err := p.Write(frame)
//	code, err := p.Stop()
package process
