package v1

import "net/http"

// Web serves a page that uploads files to the drive and follows their
// progress over the notification socket.
func Web() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		html := `
<!DOCTYPE html>
<html>
<head>
    <title>Drive</title>
    <style>
        form {
            margin: 20px;
        }
        .form-group {
            margin-bottom: 10px;
        }
        progress {
            width: 300px;
        }
        table {
            margin: 20px;
        }
    </style>
</head>
<body>
    <form id="uploadForm" onsubmit="uploadFiles(event)">
        <div class="form-group">
            <label for="fileInput">Select files:</label>
            <input type="file" id="fileInput" multiple required>
        </div>
        <div class="form-group">
            <input type="submit" value="Upload">
        </div>
        <div class="form-group">
            <progress id="progress" value="0" max="100"></progress>
            <span id="status"></span>
        </div>
    </form>

    <table>
        <thead><tr><th>File</th><th>Size</th><th>Owner</th><th>Last modified</th></tr></thead>
        <tbody id="files"></tbody>
    </table>

    <script>
    const uploading = new Map();
    let socketId = '';

    const proto = location.protocol === 'https:' ? 'wss' : 'ws';
    const socket = new WebSocket(proto + '://' + location.host + '/socket');
    socket.onmessage = (msg) => {
        const { event, data } = JSON.parse(msg.data);
        if (event === 'connected') {
            socketId = data.id;
            return;
        }
        if (event === 'file-upload') {
            onProgress(data);
        }
    };

    function onProgress({ processedAlready, filename }) {
        const file = uploading.get(filename);
        if (!file) {
            return;
        }
        file.percent = Math.ceil(processedAlready / file.size * 100);

        const files = [...uploading.values()];
        const total = files.map(({ percent }) => percent || 0)
                           .reduce((sum, current) => sum + current, 0);
        document.getElementById('progress').value = total / files.length;
    }

    async function uploadFiles(event) {
        event.preventDefault();

        const files = document.getElementById('fileInput').files;
        if (!files.length) {
            alert('Please select a file first');
            return;
        }

        uploading.clear();
        const form = new FormData();
        for (const file of files) {
            uploading.set(file.name, { size: file.size, percent: 0 });
            form.append('files', file, file.name);
        }

        const status = document.getElementById('status');
        status.textContent = 'uploading...';
        try {
            const response = await fetch('/?socketId=' + encodeURIComponent(socketId), {
                method: 'POST',
                body: form
            });
            const body = await response.json();
            status.textContent = response.ok ? body.result : 'Upload failed: ' + body.message;
            if (response.ok) {
                document.getElementById('progress').value = 100;
                document.getElementById('uploadForm').reset();
            }
        } catch (error) {
            console.error('Error:', error);
            status.textContent = 'Upload failed';
        }
        await updateCurrentFiles();
    }

    async function updateCurrentFiles() {
        const response = await fetch('/');
        const files = await response.json();
        const rows = files.map(({ file, size, owner, lastModified }) =>
            '<tr><td>' + file + '</td><td>' + size + '</td><td>' + owner + '</td><td>' +
            new Date(lastModified).toLocaleString() + '</td></tr>');
        document.getElementById('files').innerHTML = rows.join('');
    }

    updateCurrentFiles();
    </script>
</body>
</html>`

		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(html))
	}
}
