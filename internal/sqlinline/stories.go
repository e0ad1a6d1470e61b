package sqlinline

const QCreateStoriesTable = `--sql 0d3b8f2e-5a41-4c77-9e0b-6f2a9c1d7e54
create table if not exists stories (
  id text primary key,
  folder text not null,
  title text not null,
  universe text not null default '',
  images_succeeded int not null default 0,
  images_failed int not null default 0,
  total_time double precision not null default 0,
  record jsonb not null,
  created_at timestamptz not null
);
`

const QCreateStoriesCreatedAtIndex = `--sql 3c9e1a72-8b0f-4d16-a5e4-2f7d6b0c9a18
create index if not exists stories_created_at_idx on stories (created_at desc);
`

const QUpsertStory = `--sql 9a7c4e21-6d3b-4f08-b2a1-8e5f0c3d7b96
insert into stories(
  id,
  folder,
  title,
  universe,
  images_succeeded,
  images_failed,
  total_time,
  record,
  created_at
) values (
  $1::text,
  $2::text,
  $3::text,
  $4::text,
  $5::int,
  $6::int,
  $7::double precision,
  $8::jsonb,
  $9::timestamptz
)
on conflict (id) do update set
  folder = excluded.folder,
  title = excluded.title,
  universe = excluded.universe,
  images_succeeded = excluded.images_succeeded,
  images_failed = excluded.images_failed,
  total_time = excluded.total_time,
  record = excluded.record;
`

const QListStories = `--sql 5f1d8b3a-2c9e-47a0-8d6b-1e4c7a9f3b02
select record
from stories
order by created_at desc
limit $1::int;
`

const QSelectStoryByPrefix = `--sql e4b2c6d8-1a3f-4e59-9c70-b8d1f2a4c6e3
select record
from stories
where id like $1::text || '%' or folder like $1::text || '%'
order by created_at desc
limit 1;
`
