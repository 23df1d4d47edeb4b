package extractor

import "fmt"

const uidScript = `() => String((window.$CONFIG && window.$CONFIG.uid) || (window.CONFIG && window.CONFIG.uid) || "")`

const scrollScript = `() => {
	window.scrollBy(0, Math.min(1200, document.body.scrollHeight || 2000));
	return "";
}`

// ajaxScript fetches the first feed page from inside the profile page so the
// session cookies and XSRF token ride along.
func ajaxScript(uid string) string {
	return fmt.Sprintf(`async () => {
	try {
		const m = document.cookie.match(/(?:^|;\s*)XSRF-TOKEN=([^;]+)/);
		const xsrf = m ? decodeURIComponent(m[1]) : null;
		const headers = { "X-Requested-With": "XMLHttpRequest" };
		if (xsrf) headers["X-XSRF-TOKEN"] = xsrf;
		const res = await fetch("/ajax/statuses/mymblog?uid=%s&page=1&feature=0", { credentials: "include", headers });
		const text = await res.text();
		return JSON.stringify({ ok: true, status: res.status, text });
	} catch (e) {
		return JSON.stringify({ ok: false, error: String((e && e.message) || e) });
	}
}`, uid)
}

// mobileScript scrapes rendered cards on m.weibo.cn into objects shaped like
// the AJAX list. Cards without a detail link get id 0 and are skipped downstream.
const mobileScript = `() => {
	function txt(el) { return el ? (el.innerText || el.textContent || "").trim() : ""; }
	function strip(html) {
		const d = document.createElement("div");
		d.innerHTML = html || "";
		return (d.textContent || d.innerText || "").trim();
	}
	function isContentImage(img, src) {
		if (!src || src.indexOf("data:") === 0) return false;
		if (!/sinaimg\.cn/.test(src)) return false;
		if (/\/(emoji|emoticon|face)\//i.test(src)) return false;
		if (img.closest(".m-icon, .m-emoji, .m-card-head, .m-avatar-box, .badge, .weibo-top")) return false;
		return true;
	}
	const cards = Array.from(document.querySelectorAll(".card")).filter((c) => c.querySelector(".weibo-text"));
	const out = [];
	const seen = {};
	cards.forEach((c) => {
		try {
			const tEl = c.querySelector(".weibo-text");
			const timeEl = c.querySelector("time") || c.querySelector(".time");
			const srcEl = c.querySelector(".from") || c.querySelector(".weibo-footer");
			let id = 0;
			const linkEl = c.querySelector('a[href*="/detail/"]');
			if (linkEl) {
				const m = (linkEl.getAttribute("href") || "").match(/\/detail\/(\d+)/);
				if (m) id = m[1];
			}
			if (id && seen[id]) return;
			if (id) seen[id] = true;
			const media = c.querySelector(".weibo-media, .mwb-media-wrap, .mwb-media, .weibo-media-wrap");
			const imgs = [];
			(media ? Array.from(media.querySelectorAll("img")) : []).forEach((img) => {
				const src = img.getAttribute("data-src") || img.getAttribute("src") || "";
				if (!isContentImage(img, src)) return;
				let u = src.replace(/\/\/wx\d+\./, "//wx4.").replace("/orj360/", "/large/");
				if (u.indexOf("/large/") === -1 && !/\/bmiddle\//.test(u)) {
					u = u.replace("/mw690/", "/large/").replace("/mw1024/", "/large/");
				}
				imgs.push(u);
			});
			const item = {
				id: id,
				idstr: id ? String(id) : "",
				text_raw: strip(tEl ? tEl.innerHTML : ""),
				created_at: timeEl ? (timeEl.getAttribute("datetime") || txt(timeEl)) : "",
				source: txt(srcEl) || "m.weibo.cn",
			};
			if (imgs.length) {
				item.pic_ids = [];
				item.pic_infos = {};
				imgs.forEach((u, i) => {
					const key = "p" + i;
					item.pic_ids.push(key);
					item.pic_infos[key] = { large: { url: u }, bmiddle: { url: u.replace("/large/", "/bmiddle/") } };
				});
			}
			out.push(item);
		} catch (e) {}
	});
	return JSON.stringify(out);
}`
