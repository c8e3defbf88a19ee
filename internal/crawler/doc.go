// Package crawler holds the domain types shared by every crawl component: jobs and queue
// items, page signals, decisions, result records and the interfaces the worker depends on.
// It also owns URL canonicalization, job keys, the link blocklist and the retry policy.
package crawler
