package handlers

import "net/http"

// DashboardHandler serves the usage dashboard HTML page
func DashboardHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Write([]byte(dashboardHTML))
	}
}

var dashboardHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Puente - LLM Proxy Dashboard</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; background: #0f172a; color: #e2e8f0; min-height: 100vh; }
        .container { max-width: 1400px; margin: 0 auto; padding: 1.5rem; }
        header { margin-bottom: 1.5rem; display: flex; justify-content: space-between; align-items: center; }
        h1 { font-size: 1.5rem; font-weight: 700; color: white; }
        .subtitle { color: #94a3b8; font-size: 0.75rem; }
        .controls { display: flex; gap: 0.75rem; align-items: center; flex-wrap: wrap; margin-bottom: 1rem; }
        select, input { background: #1e293b; border: 1px solid #334155; color: #e2e8f0; border-radius: 0.5rem; padding: 0.45rem 0.75rem; font-size: 0.8125rem; }
        .btn { padding: 0.5rem 1rem; border-radius: 0.5rem; border: none; cursor: pointer; font-size: 0.875rem; font-weight: 500; background: #1e293b; border: 1px solid #334155; color: #94a3b8; }
        .btn:hover { background: #334155; color: white; }
        .btn-danger { border-color: #7f1d1d; color: #f87171; }
        .cards { display: grid; grid-template-columns: repeat(auto-fit, minmax(180px, 1fr)); gap: 1rem; margin-bottom: 1.5rem; }
        .card { background: #1e293b; border: 1px solid #334155; border-radius: 0.75rem; padding: 1rem; }
        .card .label { color: #94a3b8; font-size: 0.6875rem; text-transform: uppercase; letter-spacing: 0.05em; }
        .card .value { font-size: 1.5rem; font-weight: 700; color: white; margin-top: 0.25rem; }
        .card .value.cost { color: #4ade80; }
        .card .value.errors { color: #f87171; }
        h2 { font-size: 1rem; font-weight: 600; color: white; margin: 1.25rem 0 0.75rem; }
        .table-container { background: #1e293b; border-radius: 0.75rem; border: 1px solid #334155; overflow-x: auto; }
        table { width: 100%; border-collapse: collapse; font-size: 0.8125rem; }
        thead { background: #0f172a; }
        th { padding: 0.6rem 1rem; text-align: left; font-weight: 600; color: #94a3b8; text-transform: uppercase; font-size: 0.6875rem; letter-spacing: 0.05em; }
        th.right, td.right { text-align: right; }
        tbody tr { border-top: 1px solid #334155; }
        tbody tr:hover { background: #334155; }
        td { padding: 0.55rem 1rem; vertical-align: middle; }
        .mono { font-family: ui-monospace, SFMono-Regular, Menlo, monospace; font-size: 0.75rem; }
        .error-text { color: #f87171; }
        .empty { color: #64748b; text-align: center; padding: 1.5rem; }
        .provider-tag { display: inline-block; padding: 0.1rem 0.5rem; border-radius: 999px; background: #0f172a; border: 1px solid #334155; font-size: 0.6875rem; color: #93c5fd; }
    </style>
</head>
<body>
    <div class="container">
        <header>
            <div>
                <h1>Puente</h1>
                <div class="subtitle">LLM proxy &middot; usage &amp; cost</div>
            </div>
            <div class="controls">
                <select id="range">
                    <option value="24">Last 24 hours</option>
                    <option value="168">Last 7 days</option>
                    <option value="720">Last 30 days</option>
                    <option value="">All time</option>
                </select>
                <button class="btn" onclick="refresh()">Refresh</button>
                <button class="btn btn-danger" onclick="clearErrors()">Clear errors</button>
            </div>
        </header>

        <div class="cards">
            <div class="card"><div class="label">Requests</div><div class="value" id="c-requests">–</div></div>
            <div class="card"><div class="label">Total cost</div><div class="value cost" id="c-cost">–</div></div>
            <div class="card"><div class="label">Prompt tokens</div><div class="value" id="c-prompt">–</div></div>
            <div class="card"><div class="label">Completion tokens</div><div class="value" id="c-completion">–</div></div>
            <div class="card"><div class="label">Avg duration</div><div class="value" id="c-duration">–</div></div>
            <div class="card"><div class="label">Recent errors</div><div class="value errors" id="c-errors">–</div></div>
        </div>

        <h2>By model</h2>
        <div class="table-container">
            <table>
                <thead><tr><th>Model</th><th>Provider</th><th class="right">Requests</th><th class="right">Tokens</th><th class="right">Cost</th></tr></thead>
                <tbody id="by-model"><tr><td colspan="5" class="empty">Loading…</td></tr></tbody>
            </table>
        </div>

        <h2>Recent requests</h2>
        <div class="table-container">
            <table>
                <thead><tr><th>Time (UTC)</th><th>Model</th><th>Provider</th><th class="right">Tokens</th><th class="right">Cost</th><th class="right">Duration</th></tr></thead>
                <tbody id="recent"><tr><td colspan="6" class="empty">Loading…</td></tr></tbody>
            </table>
        </div>

        <h2>Recent errors</h2>
        <div class="table-container">
            <table>
                <thead><tr><th>Time (UTC)</th><th>Model</th><th>Error</th></tr></thead>
                <tbody id="errors"><tr><td colspan="3" class="empty">None</td></tr></tbody>
            </table>
        </div>
    </div>

    <script>
        const fmt = n => n == null ? '–' : n.toLocaleString();
        const usd = n => n == null ? '–' : '$' + n.toFixed(4);

        function windowQuery() {
            const hours = document.getElementById('range').value;
            return hours ? ('?hours=' + hours) : '';
        }

        async function refresh() {
            const q = windowQuery();
            const [stats, page] = await Promise.all([
                fetch('/stats' + q).then(r => r.json()),
                fetch('/requests' + (q ? q + '&limit=20' : '?limit=20')).then(r => r.json()),
            ]);

            const t = stats.totals;
            document.getElementById('c-requests').textContent = fmt(t.requests);
            document.getElementById('c-cost').textContent = usd(t.cost);
            document.getElementById('c-prompt').textContent = fmt(t.prompt_tokens);
            document.getElementById('c-completion').textContent = fmt(t.completion_tokens);
            document.getElementById('c-duration').textContent = t.avg_duration_ms ? t.avg_duration_ms.toFixed(0) + ' ms' : '–';
            document.getElementById('c-errors').textContent = fmt(stats.recent_errors.length);

            const byModel = document.getElementById('by-model');
            byModel.innerHTML = stats.by_model.length ? stats.by_model.map(m =>
                '<tr><td class="mono">' + m.model + '</td><td><span class="provider-tag">' + m.provider + '</span></td>' +
                '<td class="right">' + fmt(m.requests) + '</td><td class="right">' + fmt(m.tokens) + '</td>' +
                '<td class="right">' + usd(m.cost) + '</td></tr>'
            ).join('') : '<tr><td colspan="5" class="empty">No data</td></tr>';

            const recent = document.getElementById('recent');
            recent.innerHTML = page.requests.length ? page.requests.map(r =>
                '<tr><td class="mono">' + r.timestamp.replace('T', ' ').slice(0, 19) + '</td>' +
                '<td class="mono">' + r.model + '</td><td><span class="provider-tag">' + r.provider + '</span></td>' +
                '<td class="right">' + fmt(r.total_tokens) + '</td><td class="right">' + usd(r.cost) + '</td>' +
                '<td class="right">' + fmt(r.duration_ms) + ' ms</td></tr>'
            ).join('') : '<tr><td colspan="6" class="empty">No requests yet</td></tr>';

            const errors = document.getElementById('errors');
            errors.innerHTML = stats.recent_errors.length ? stats.recent_errors.map(e =>
                '<tr><td class="mono">' + e.timestamp.replace('T', ' ').slice(0, 19) + '</td>' +
                '<td class="mono">' + e.model + '</td><td class="error-text">' + e.error + '</td></tr>'
            ).join('') : '<tr><td colspan="3" class="empty">None</td></tr>';
        }

        async function clearErrors() {
            await fetch('/errors', { method: 'DELETE' });
            refresh();
        }

        document.getElementById('range').addEventListener('change', refresh);
        refresh();
        setInterval(refresh, 30000);
    </script>
</body>
</html>
`
