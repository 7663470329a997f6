// Command ytlive archives a YouTube livestream from its start (or from
// whenever it is invoked) through to the end of the broadcast, muxing the
// downloaded audio and video fragments into a single file once finished.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/rivergate-tools/ytlive/internal/coordinator"
	"github.com/rivergate-tools/ytlive/internal/cookiejar"
	"github.com/rivergate-tools/ytlive/internal/descfile"
	"github.com/rivergate-tools/ytlive/internal/durfmt"
	"github.com/rivergate-tools/ytlive/internal/mux"
	"github.com/rivergate-tools/ytlive/internal/progress"
	"github.com/rivergate-tools/ytlive/internal/quality"
	"github.com/rivergate-tools/ytlive/internal/session"
	"github.com/rivergate-tools/ytlive/internal/thumbnail"
	"github.com/rivergate-tools/ytlive/internal/tmplexpand"
	"github.com/rivergate-tools/ytlive/internal/waitpoll"
	"github.com/rivergate-tools/ytlive/internal/ytdlurl"
	"github.com/rivergate-tools/ytlive/internal/ytlog"
	"github.com/rivergate-tools/ytlive/internal/ytmeta"
)

const defaultOutputFormat = "%(channel)s/%(channel)s - %(title)s"

func main() {
	app := &cli.App{
		Name:  "ytlive",
		Usage: "archive a YouTube livestream, fragment by fragment, as it happens",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "wait", Aliases: []string{"w"}, Usage: "wait for a scheduled stream to start"},
			&cli.BoolFlag{Name: "no-wait", Aliases: []string{"n"}, Usage: "do not wait for a scheduled stream to start"},
			&cli.StringFlag{Name: "retry-stream", Aliases: []string{"r"}, Usage: "retry every SECONDS instead of waiting until the scheduled time"},
			&cli.StringFlag{Name: "cookies", Aliases: []string{"c"}, Usage: "Netscape-format cookies file, for members-only streams"},
			&cli.BoolFlag{Name: "thumbnail", Aliases: []string{"t"}, Usage: "embed the broadcast thumbnail in the output"},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Value: defaultOutputFormat, Usage: "output filename template"},
			&cli.IntFlag{Name: "threads", Value: 1, Usage: "number of fragment download workers per media kind"},
			&cli.BoolFlag{Name: "vp9", Usage: "prefer VP9 over H264 when both are available"},
			&cli.BoolFlag{Name: "add-metadata", Usage: "embed title/channel/date/url as container metadata"},
			&cli.BoolFlag{Name: "write-description", Usage: "write the broadcast description to a .description file"},
			&cli.BoolFlag{Name: "write-thumbnail", Usage: "save the broadcast thumbnail to a separate file"},
			&cli.StringFlag{Name: "write-mux-file", Usage: "write the final ffmpeg mux command to PATH instead of running it"},
			&cli.BoolFlag{Name: "merge", Value: true, Usage: "mux audio and video after the download finishes"},
			&cli.BoolFlag{Name: "no-merge", Usage: "skip muxing, keep the raw fragment files"},
			&cli.BoolFlag{Name: "save", Value: true, Usage: "keep partially downloaded data on interrupt"},
			&cli.BoolFlag{Name: "no-save", Usage: "discard partially downloaded data on interrupt"},
			&cli.BoolFlag{Name: "4", Usage: "force IPv4"},
			&cli.BoolFlag{Name: "6", Usage: "force IPv6"},
			&cli.StringFlag{Name: "audio-url", Usage: "direct googlevideo.com fragment URL for the audio track"},
			&cli.StringFlag{Name: "video-url", Usage: "direct googlevideo.com fragment URL for the video track"},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "log informational messages"},
			&cli.BoolFlag{Name: "debug", Usage: "log debug messages"},
		},
		ArgsUsage: "[url] [quality]",
		Action:    run,
	}

	if err := app.Run(os.Args); err != nil {
		ytlog.Error("%s", err)
		os.Exit(1)
	}
}

func run(cCtx *cli.Context) error {
	if cCtx.Bool("debug") {
		ytlog.SetLevel(ytlog.LevelDebug)
	} else if cCtx.Bool("verbose") {
		ytlog.SetLevel(ytlog.LevelInfo)
	}

	outputFormat := cCtx.String("output")
	if _, err := tmplexpand.Expand(outputFormat, session.NewFormatInfo()); err != nil {
		return cli.Exit(fmt.Sprintf("output format test failed: %s", err), 1)
	}

	st := session.New()
	st.ThreadCount = cCtx.Int("threads")
	st.VP9 = cCtx.Bool("vp9")

	switch {
	case cCtx.Bool("no-wait"):
		st.Wait = session.WaitNo
	case cCtx.Bool("wait"):
		st.Wait = session.WaitYes
	default:
		st.Wait = session.WaitAsk
	}

	if raw := cCtx.String("retry-stream"); raw != "" {
		d, err := durfmt.ParseRetryInterval(raw)
		if err != nil {
			return cli.Exit(fmt.Sprintf("invalid --retry-stream value: %s", err), 1)
		}
		st.RetrySecs = d
	}

	urlArg := cCtx.Args().Get(0)
	if urlArg == "" {
		urlArg = promptLine("Enter a YouTube video, channel/live, or googlevideo URL: ")
	}
	st.URL = urlArg

	qualityArg := cCtx.Args().Get(1)
	st.SelectedQuality = strings.ToLower(qualityArg)

	var cookieJar http.CookieJar
	if cfile := cCtx.String("cookies"); cfile != "" {
		jar, err := cookiejar.Load(cfile)
		if err != nil {
			return cli.Exit(err.Error(), 1)
		}
		cookieJar = jar
		ytlog.Info("loaded cookie file %s", cfile)
	}

	network := ""
	switch {
	case cCtx.Bool("4"):
		network = "tcp4"
	case cCtx.Bool("6"):
		network = "tcp6"
	}

	audioURLFlag := cCtx.String("audio-url")
	videoURLFlag := cCtx.String("video-url")
	if audioURLFlag != "" || videoURLFlag != "" {
		return runDirectGvideo(cCtx, st, audioURLFlag, videoURLFlag, outputFormat)
	}

	parsed, err := ytdlurl.Parse(urlArg)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	videoID := parsed.VideoID
	if parsed.Kind == ytdlurl.KindChannelLive {
		resolvedID, err := resolveChannelLive(cCtx.Context, parsed.ChannelURL)
		if err != nil {
			return cli.Exit(err.Error(), 1)
		}
		videoID = resolvedID
	}
	st.VideoID = videoID

	resolver, err := ytmeta.New(videoID, cookieJar, network)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	ask := func(url string) bool {
		fmt.Printf("%s is probably a future scheduled livestream.\n", url)
		return askYesNo("Wait for the livestream and record it?")
	}
	poller := waitpoll.New(resolver, ask)

	result, err := poller.WaitForPlayable(cCtx.Context, st)
	if err != nil {
		if err == waitpoll.ErrUserDeclinedWait {
			return cli.Exit("", 1)
		}
		return cli.Exit(err.Error(), 1)
	}

	available := quality.AvailableLabels(result.PlayerResponse.StreamingData.AdaptiveFormats)
	pref := orDefault(st.SelectedQuality, "best")
	sel, ok := quality.Resolve(quality.ParsePreferenceList(pref, available), available, result.URLs, st.VP9)
	for !ok {
		fmt.Printf("None of the requested qualities are available. Available qualities: %s\n", strings.Join(available, "/"))
		pref = promptLine("Enter desired quality (slash-separated list, or best): ")
		if pref == "" {
			return cli.Exit("none of the requested qualities are available for this stream", 1)
		}
		sel, ok = quality.Resolve(quality.ParsePreferenceList(pref, available), available, result.URLs, st.VP9)
	}

	st.Quality = sel.Itag
	if audioURL, has := result.URLs[quality.AudioItag]; has {
		st.SetDownloadURL(session.KindAudio, audioURL)
	}
	if !sel.AudioOnly {
		if videoURL, has := result.URLs[sel.Itag]; has {
			st.SetDownloadURL(session.KindVideo, videoURL)
		}
	}

	st.SetInProgress(true)
	st.Thumbnail = firstThumbnailURL(result.PlayerResponse)
	populateFormatInfo(st, result.PlayerResponse)
	populateMetadata(st, result.PlayerResponse)

	baseName, err := tmplexpand.Expand(outputFormat, st.FormatInfo)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	if dir := filepath.Dir(baseName); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			ytlog.Warn("could not create output directory, using current directory: %s", err)
			baseName = filepath.Base(baseName)
		}
	}

	st.SetBaseFilePath(session.KindAudio, baseName+".f140")
	if !sel.AudioOnly {
		st.SetBaseFilePath(session.KindVideo, fmt.Sprintf("%s.f%d", baseName, sel.Itag))
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}

	progCh := make(chan progress.Update, 64)
	agg := progress.New(st)
	progDone := make(chan struct{})
	var totalBytes int64
	var fragCounts map[session.Kind]int
	go func() {
		totalBytes, fragCounts = agg.Run(progCh)
		close(progDone)
	}()

	audioFile := baseName + ".f140.ts"
	videoFile := fmt.Sprintf("%s.f%d.ts", baseName, sel.Itag)

	audioCoord := coordinator.New(session.KindAudio, st, httpClient, resolver, sel, progCh)
	var videoCoord *coordinator.Coordinator
	if !sel.AudioOnly {
		videoCoord = coordinator.New(session.KindVideo, st, httpClient, resolver, sel, progCh)
	}

	errCh := make(chan error, 2)
	go func() { errCh <- audioCoord.Run(cCtx.Context, audioFile) }()
	if videoCoord != nil {
		go func() { errCh <- videoCoord.Run(cCtx.Context, videoFile) }()
	} else {
		errCh <- nil
	}

	var downloadErr error
	for i := 0; i < 2; i++ {
		if e := <-errCh; e != nil {
			downloadErr = e
		}
	}
	close(progCh)
	<-progDone
	ytlog.StatusDone()

	_ = totalBytes
	if !sel.AudioOnly && fragCounts[session.KindAudio] != fragCounts[session.KindVideo] {
		ytlog.Warn("mismatched number of video and audio fragments; the files should still be mergable")
	}

	if (downloadErr != nil || st.IsStopping()) && (!cCtx.Bool("save") || cCtx.Bool("no-save")) {
		os.Remove(audioFile)
		if !sel.AudioOnly {
			os.Remove(videoFile)
		}
		if downloadErr == nil {
			return cli.Exit("download interrupted", 2)
		}
		return cli.Exit(downloadErr.Error(), 2)
	}

	if cCtx.Bool("write-description") {
		if err := descfile.Write(baseName+".description", descriptionFor(result.PlayerResponse)); err != nil {
			ytlog.Warn("failed to write description: %s", err)
		}
	}

	thumbFile := baseName + ".jpg"
	wantThumbnail := cCtx.Bool("thumbnail") || cCtx.Bool("write-thumbnail")
	if wantThumbnail && st.Thumbnail != "" {
		if err := thumbnail.Fetch(cCtx.Context, st.Thumbnail, thumbFile); err != nil {
			ytlog.Warn("failed to download thumbnail: %s", err)
			wantThumbnail = false
		}
	}

	if cCtx.Bool("no-merge") {
		return nil
	}

	plan := mux.Plan{
		AudioPath:  audioFile,
		VideoPath:  videoFile,
		OutputPath: outputPath(baseName, sel.AudioOnly),
		AudioOnly:  sel.AudioOnly,
	}
	if wantThumbnail && cCtx.Bool("thumbnail") {
		plan.ThumbnailPath = thumbFile
	}
	if cCtx.Bool("add-metadata") {
		plan.Metadata = st.Metadata
	}

	if scriptPath := cCtx.String("write-mux-file"); scriptPath != "" {
		return mux.WriteShellScript(scriptPath, plan)
	}

	assembler, err := mux.New()
	if err != nil {
		ytlog.Warn("%s", err)
		return nil
	}
	if err := assembler.Assemble(cCtx.Context, plan); err != nil {
		return cli.Exit(err.Error(), 1)
	}

	if wantThumbnail && !cCtx.Bool("thumbnail") {
		// Thumbnail was only requested as a standalone file, not embedded.
	} else if wantThumbnail {
		os.Remove(thumbFile)
	}

	return nil
}

func outputPath(baseName string, audioOnly bool) string {
	if audioOnly {
		return baseName + ".m4a"
	}
	return baseName + ".mp4"
}

func firstThumbnailURL(pr *ytmeta.PlayerResponse) string {
	thumbs := pr.Microformat.PlayerMicroformatRenderer.Thumbnail.Thumbnails
	if len(thumbs) == 0 {
		return ""
	}
	return thumbs[0].URL
}

func populateFormatInfo(st *session.State, pr *ytmeta.PlayerResponse) {
	st.FormatInfo["id"] = sterilizeFilename(pr.VideoDetails.VideoID)
	st.FormatInfo["title"] = sterilizeFilename(pr.VideoDetails.Title)
	st.FormatInfo["channel_id"] = sterilizeFilename(pr.VideoDetails.ChannelID)
	st.FormatInfo["channel"] = sterilizeFilename(pr.VideoDetails.Author)
	st.FormatInfo["upload_date"] = sterilizeFilename(strings.ReplaceAll(pr.Microformat.PlayerMicroformatRenderer.UploadDate, "-", ""))
	st.FormatInfo["publish_date"] = sterilizeFilename(strings.ReplaceAll(pr.Microformat.PlayerMicroformatRenderer.PublishDate, "-", ""))
	st.FormatInfo["start_date"] = sterilizeFilename(strings.ReplaceAll(pr.Microformat.PlayerMicroformatRenderer.LiveBroadcastDetails.StartTimestamp, "-", ""))
	st.FormatInfo["url"] = fmt.Sprintf("https://www.youtube.com/watch?v=%s", pr.VideoDetails.VideoID)
}

func populateMetadata(st *session.State, pr *ytmeta.PlayerResponse) {
	url := fmt.Sprintf("https://www.youtube.com/watch?v=%s", pr.VideoDetails.VideoID)
	st.Metadata["title"] = pr.VideoDetails.Title
	st.Metadata["artist"] = pr.VideoDetails.Author
	st.Metadata["date"] = strings.ReplaceAll(pr.Microformat.PlayerMicroformatRenderer.UploadDate, "-", "")
	st.Metadata["comment"] = fmt.Sprintf("%s\n\n%s", url, pr.VideoDetails.ShortDescription)
}

func descriptionFor(pr *ytmeta.PlayerResponse) string {
	return pr.VideoDetails.ShortDescription
}

// sterilizeFilename strips characters that are unsafe in a filename
// component, matching the teacher's sterilize_filename.
func sterilizeFilename(s string) string {
	replacer := strings.NewReplacer(
		"/", "_", "\\", "_", ":", "_", "*", "_",
		"?", "_", "\"", "_", "<", "_", ">", "_", "|", "_",
	)
	return replacer.Replace(s)
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func promptLine(prompt string) string {
	fmt.Print(prompt)
	scanner := bufio.NewScanner(os.Stdin)
	if scanner.Scan() {
		return strings.TrimSpace(scanner.Text())
	}
	return ""
}

func askYesNo(msg string) bool {
	answer := promptLine(fmt.Sprintf("%s [y/N]: ", msg))
	return strings.HasPrefix(strings.ToLower(answer), "y")
}

// noopResolver backs direct-URL sessions (--audio-url/--video-url), which
// carry no watch-page metadata to re-resolve: a fragment URL refresh just
// isn't possible once the signed URL expires, so every call reports stale.
type noopResolver struct{}

func (noopResolver) Refresh(ctx context.Context, st *session.State) (*ytmeta.RefreshResult, error) {
	return &ytmeta.RefreshResult{Verdict: ytmeta.VerdictStale}, nil
}

func (noopResolver) ResolveOnce(ctx context.Context, st *session.State) (*ytmeta.RefreshResult, error) {
	return &ytmeta.RefreshResult{Verdict: ytmeta.VerdictStale}, nil
}

// runDirectGvideo downloads straight from already-signed googlevideo.com
// fragment URLs, skipping metadata resolution and quality selection
// entirely (§6 "direct URL" input form).
func runDirectGvideo(cCtx *cli.Context, st *session.State, audioURLFlag, videoURLFlag, outputFormat string) error {
	audioOnly := videoURLFlag == ""

	var videoID string
	if audioURLFlag != "" {
		parsed, err := ytdlurl.Parse(audioURLFlag)
		if err != nil {
			return cli.Exit(err.Error(), 1)
		}
		if parsed.Kind != ytdlurl.KindGvideoDirect {
			return cli.Exit("--audio-url must be a direct googlevideo.com fragment URL", 1)
		}
		st.SetDownloadURL(session.KindAudio, parsed.GvideoTemplate)
		videoID = parsed.VideoID
	}
	if videoURLFlag != "" {
		parsed, err := ytdlurl.Parse(videoURLFlag)
		if err != nil {
			return cli.Exit(err.Error(), 1)
		}
		if parsed.Kind != ytdlurl.KindGvideoDirect {
			return cli.Exit("--video-url must be a direct googlevideo.com fragment URL", 1)
		}
		st.SetDownloadURL(session.KindVideo, parsed.GvideoTemplate)
		videoID = parsed.VideoID
	}

	st.VideoID = videoID
	st.SetLive(true)
	st.SetInProgress(true)
	st.FormatInfo["id"] = videoID
	st.FormatInfo["title"] = videoID
	st.FormatInfo["channel"] = "unknown"
	st.FormatInfo["channel_id"] = "unknown"
	st.FormatInfo["url"] = fmt.Sprintf("https://www.youtube.com/watch?v=%s", videoID)

	baseName, err := tmplexpand.Expand(outputFormat, st.FormatInfo)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	if dir := filepath.Dir(baseName); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			ytlog.Warn("could not create output directory, using current directory: %s", err)
			baseName = filepath.Base(baseName)
		}
	}

	st.SetBaseFilePath(session.KindAudio, baseName+".f140")
	if !audioOnly {
		st.SetBaseFilePath(session.KindVideo, baseName+".fvid")
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}

	progCh := make(chan progress.Update, 64)
	agg := progress.New(st)
	progDone := make(chan struct{})
	go func() {
		agg.Run(progCh)
		close(progDone)
	}()

	audioFile := audioFileName(baseName)
	videoFile := baseName + ".fvid.ts"

	var resolver noopResolver
	sel := quality.Selection{AudioOnly: audioOnly}
	audioCoord := coordinator.New(session.KindAudio, st, httpClient, resolver, sel, progCh)
	var videoCoord *coordinator.Coordinator
	if !audioOnly {
		videoCoord = coordinator.New(session.KindVideo, st, httpClient, resolver, sel, progCh)
	}

	errCh := make(chan error, 2)
	go func() { errCh <- audioCoord.Run(cCtx.Context, audioFile) }()
	if videoCoord != nil {
		go func() { errCh <- videoCoord.Run(cCtx.Context, videoFile) }()
	} else {
		errCh <- nil
	}

	var downloadErr error
	for i := 0; i < 2; i++ {
		if e := <-errCh; e != nil {
			downloadErr = e
		}
	}
	close(progCh)
	<-progDone
	ytlog.StatusDone()

	if (downloadErr != nil || st.IsStopping()) && (!cCtx.Bool("save") || cCtx.Bool("no-save")) {
		os.Remove(audioFile)
		if !audioOnly {
			os.Remove(videoFile)
		}
		if downloadErr == nil {
			return cli.Exit("download interrupted", 2)
		}
		return cli.Exit(downloadErr.Error(), 2)
	}

	if cCtx.Bool("no-merge") {
		return nil
	}

	plan := mux.Plan{
		AudioPath:  audioFile,
		VideoPath:  videoFile,
		OutputPath: outputPath(baseName, audioOnly),
		AudioOnly:  audioOnly,
	}

	if scriptPath := cCtx.String("write-mux-file"); scriptPath != "" {
		return mux.WriteShellScript(scriptPath, plan)
	}

	assembler, err := mux.New()
	if err != nil {
		ytlog.Warn("%s", err)
		return nil
	}
	return assembler.Assemble(cCtx.Context, plan)
}

func audioFileName(baseName string) string {
	return baseName + ".f140.ts"
}

func resolveChannelLive(ctx context.Context, channelURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, channelURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return "", err
	}
	id, ok := ytdlurl.ExtractVideoIDFromCanonical(string(body))
	if !ok {
		return "", fmt.Errorf("could not resolve channel live page to a video ID")
	}
	return id, nil
}
