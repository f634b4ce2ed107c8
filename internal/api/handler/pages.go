package handler

import (
	"html/template"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// PagesHandler renders the minimal upload form and viewer page. Neither is
// a design focus: just enough markup to drive the HTTP contract from a
// browser without a separate frontend build.
type PagesHandler struct {
	upload *template.Template
	watch  *template.Template
}

func NewPagesHandler() *PagesHandler {
	return &PagesHandler{
		upload: template.Must(template.New("upload").Parse(uploadPageHTML)),
		watch:  template.Must(template.New("watch").Parse(watchPageHTML)),
	}
}

// Index redirects to the upload form.
func (h *PagesHandler) Index(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/upload", http.StatusFound)
}

// Upload renders the upload form.
func (h *PagesHandler) Upload(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	h.upload.Execute(w, nil)
}

// Watch renders the player page for videoID.
func (h *PagesHandler) Watch(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "videoID")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	h.watch.Execute(w, struct{ VideoID string }{VideoID: videoID})
}

const uploadPageHTML = `<!DOCTYPE html>
<html>
<head><title>streamcast upload</title></head>
<body>
<h1>Upload a video</h1>
<form action="/upload" method="post" enctype="multipart/form-data">
  <input type="file" name="video" accept="video/*" required>
  <button type="submit">Upload</button>
</form>
<script>
const form = document.querySelector('form');
form.addEventListener('submit', async (e) => {
  e.preventDefault();
  const resp = await fetch('/upload', {method: 'POST', body: new FormData(form)});
  const body = await resp.json();
  if (body.success) {
    window.location.href = '/watch/' + body.video_id;
  } else {
    alert(body.error || 'upload failed');
  }
});
</script>
</body>
</html>`

const watchPageHTML = `<!DOCTYPE html>
<html>
<head>
  <title>streamcast watch</title>
  <script src="https://cdn.jsdelivr.net/npm/hls.js@latest"></script>
</head>
<body>
<h1>Video {{.VideoID}}</h1>
<p id="status">checking status...</p>
<video id="player" controls width="640"></video>
<script>
const videoID = "{{.VideoID}}";
</script>
<script>
const statusEl = document.getElementById('status');
const videoEl = document.getElementById('player');

async function poll() {
  const resp = await fetch('/status/' + videoID);
  const body = await resp.json();
  statusEl.textContent = 'status: ' + body.status;
  if (body.status === 'ready') {
    const src = '/hls/' + videoID + '/master.m3u8';
    if (Hls.isSupported()) {
      const hls = new Hls();
      hls.loadSource(src);
      hls.attachMedia(videoEl);
    } else {
      videoEl.src = src;
    }
    return;
  }
  if (body.status === 'error') {
    statusEl.textContent = 'status: error - ' + (body.error || 'unknown');
    return;
  }
  setTimeout(poll, 3000);
}
poll();
</script>
</body>
</html>`
