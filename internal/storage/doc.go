// Package storage provides CSV-based persistence for scraped course records.
//
// A Store is a handle on one CSV file. Merge appends only records whose course
// code is not yet present (first write wins, across the lifetime of the file),
// ReadAll returns every row in storage order, and DeleteByKey rewrites the file
// without the rows matching a course code. Merge and DeleteByKey are serialized
// behind the store's writer lock; DeleteByKey replaces the file atomically.
// The default store location is ~/.local/share/course-scraper/course_data.csv.
package storage
