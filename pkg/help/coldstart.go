package help

const ColdstartYAML = `# llm-bionic Quick Start

what_it_does: |
  Bolds the leading part of every word in chat responses ("bionic reading").
  Code, inputs, editable areas and user messages are left alone; text that is
  still streaming is held back until it has been quiet for the debounce.

commands:
  render_file: |
    bionic render --in answer.html --out answer.bionic.html

  render_article: |
    bionic render --url "https://example.com/post" --article

  simulate_stream: |
    bionic stream --in reply.txt --chunk-delay 40ms --words-per-chunk 3 --summary

  undo: |
    bionic revert --in answer.bionic.html --out answer.html

  try_words: |
    bionic text "reading self-taught v2.5.0 report.pdf"

  switch_on_off: |
    bionic toggle
    bionic status

  history: |
    bionic history --limit 10
    bionic run 3

config_keys:
  ratio: "Fraction of each word emphasised (default 0.43)"
  batch_size: "Units transformed per frame (default 50)"
  queue_capacity: "Pending units kept before the oldest are dropped (default 1000)"
  debounce: "Quiet time before a streamed unit is transformed (default 1s)"
  poll_interval: "How often held units are checked (default 200ms)"
  region_selectors: "CSS selectors of content regions"
  protected_tags: "Tags never transformed"
  protected_selectors: "Selectors of protected zones"
  languages: "Only transform regions in these languages (empty = all)"

invariants:
  - "Stripping the markup always gives back the original text"
  - "Each text unit is transformed at most once"
  - "No more than batch_size units are transformed per frame"
  - "Toggling off restores the document and clears all pending work"

exit_codes:
  - "0=success, 1=error"
`
